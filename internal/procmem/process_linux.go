//go:build linux

package procmem

import (
	"debug/elf"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"offsetdump/internal/memory"
)

type linuxProcess struct {
	pid   int
	width memory.PointerWidth
}

// Open attaches to pid. Reading another process needs ptrace permission.
func Open(pid int) (memory.Process, error) {
	if err := unix.Kill(pid, 0); err != nil {
		return nil, fmt.Errorf("pid %d: %w", pid, err)
	}

	width := memory.Width64
	f, err := elf.Open("/proc/" + strconv.Itoa(pid) + "/exe")
	if err != nil {
		return nil, fmt.Errorf("read executable: %w", err)
	}
	if f.Class == elf.ELFCLASS32 {
		width = memory.Width32
	}
	f.Close()

	return &linuxProcess{pid: pid, width: width}, nil
}

func (p *linuxProcess) regions() ([]region, error) {
	f, err := os.Open("/proc/" + strconv.Itoa(p.pid) + "/maps")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseMaps(f)
}

func (p *linuxProcess) Modules() ([]memory.ModuleInfo, error) {
	regions, err := p.regions()
	if err != nil {
		return nil, err
	}
	return modulesFromRegions(regions), nil
}

func (p *linuxProcess) ReadMemory(addr uint64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	regions, err := p.regions()
	if err != nil {
		return err
	}
	chunks, err := plan(regions, addr, len(buf))
	if err != nil {
		return err
	}

	clear(buf)
	for _, c := range chunks {
		local := []unix.Iovec{{Base: &buf[c.off]}}
		local[0].SetLen(c.n)
		remote := []unix.RemoteIovec{{Base: uintptr(c.addr), Len: c.n}}

		n, err := unix.ProcessVMReadv(p.pid, local, remote, 0)
		if err != nil {
			return fmt.Errorf("process_vm_readv %#x: %w", c.addr, err)
		}
		if n != c.n {
			return fmt.Errorf("process_vm_readv %#x: short read %d of %d", c.addr, n, c.n)
		}
	}
	return nil
}

func (p *linuxProcess) PointerWidth() memory.PointerWidth {
	return p.width
}

func (p *linuxProcess) Close() error {
	return nil
}
