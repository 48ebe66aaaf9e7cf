// Command testbin is a minimal package-manager fixture for testing the settle
// library. It keeps per-package state as files under -state DIR.
//
// Behavior:
//   - "install NAME [-delay D]": marks NAME installed after D (in the
//     background when D > 0), then prints "Success"
//   - "uninstall NAME [-delay D]": removes NAME after D; prints "Success".
//     A protected package is never removed and the status reports
//     DELETE_FAILED_OWNER_BLOCKED instead
//   - "status NAME": prints "package:NAME installed", "package:NAME removed"
//     or "package:NAME NOT INSTALLED FOR user 0"; exits 0
//   - "protect NAME": marks NAME as owned by a privileged owner
//   - "-notify PID": sends SIGUSR1 to PID when a state change lands
//   - "fail": exits with status 2 and an error on stderr
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("testbin", pflag.ExitOnError)
	stateDir := fs.String("state", os.TempDir(), "state directory")
	delay := fs.Duration("delay", 0, "delay before the state change lands")
	notify := fs.Int("notify", 0, "pid to send SIGUSR1 once the change lands")
	_ = fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: testbin [-state DIR] install|uninstall|status|protect NAME")
		os.Exit(64)
	}

	if args[0] == "fail" {
		fmt.Fprintln(os.Stderr, "Error: failure requested")
		os.Exit(2)
	}
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "%s: missing package name\n", args[0])
		os.Exit(64)
	}

	pkg := &pkgState{dir: *stateDir, name: args[1]}
	switch args[0] {
	case "install":
		change(pkg.install, *delay, *notify)
	case "uninstall":
		if pkg.exists("protected") {
			pkg.write("blocked")
			fmt.Println("Success")
			return
		}
		change(pkg.uninstall, *delay, *notify)
	case "status":
		fmt.Println(pkg.status())
	case "protect":
		pkg.write("installed")
		pkg.write("protected")
		fmt.Println("Success")
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		os.Exit(64)
	}
}

// change applies f now, or after delay in a detached child so the caller
// returns before the state lands.
func change(f func(), delay time.Duration, notify int) {
	if delay > 0 && os.Getenv("TESTBIN_CHILD") == "" {
		self, err := os.Executable()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		attr := &os.ProcAttr{
			Env:   append(os.Environ(), "TESTBIN_CHILD=1"),
			Files: []*os.File{nil, nil, nil},
			Sys:   &syscall.SysProcAttr{Setsid: true},
		}
		proc, err := os.StartProcess(self, os.Args, attr)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		_ = proc.Release()
		fmt.Println("Success")
		return
	}

	time.Sleep(delay)
	f()
	if notify > 0 {
		_ = syscall.Kill(notify, syscall.SIGUSR1)
	}
	if os.Getenv("TESTBIN_CHILD") == "" {
		fmt.Println("Success")
	}
}

type pkgState struct {
	dir  string
	name string
}

func (p *pkgState) path(marker string) string {
	return filepath.Join(p.dir, p.name+"."+marker)
}

func (p *pkgState) exists(marker string) bool {
	_, err := os.Stat(p.path(marker))
	return err == nil
}

func (p *pkgState) write(marker string) {
	if err := os.WriteFile(p.path(marker), nil, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (p *pkgState) install() {
	_ = os.Remove(p.path("removed"))
	p.write("installed")
}

func (p *pkgState) uninstall() {
	if !p.exists("installed") {
		return
	}
	_ = os.Remove(p.path("installed"))
	p.write("removed")
}

func (p *pkgState) status() string {
	switch {
	case p.exists("blocked"):
		return fmt.Sprintf("package:%s installed\nDELETE_FAILED_OWNER_BLOCKED", p.name)
	case p.exists("installed"):
		return fmt.Sprintf("package:%s installed", p.name)
	case p.exists("removed"):
		return fmt.Sprintf("package:%s removed", p.name)
	default:
		return fmt.Sprintf("package:%s NOT INSTALLED FOR user 0", p.name)
	}
}
