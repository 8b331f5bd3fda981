//go:build windows

package procmem

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/windows"

	"offsetdump/internal/memory"
)

type winProcess struct {
	pid    uint32
	handle windows.Handle
	width  memory.PointerWidth
}

// Open attaches to pid with read access.
func Open(pid int) (memory.Process, error) {
	const access = windows.PROCESS_QUERY_INFORMATION | windows.PROCESS_VM_READ
	h, err := windows.OpenProcess(access, false, uint32(pid))
	if err != nil {
		return nil, fmt.Errorf("OpenProcess: %w", err)
	}

	var wow64 bool
	if err := windows.IsWow64Process(h, &wow64); err != nil {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("IsWow64Process: %w", err)
	}

	width := memory.Width64
	if wow64 || runtime.GOARCH == "386" {
		width = memory.Width32
	}

	return &winProcess{pid: uint32(pid), handle: h, width: width}, nil
}

func (p *winProcess) Modules() ([]memory.ModuleInfo, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, p.pid)
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot: %w", err)
	}
	defer windows.CloseHandle(snap)

	var me windows.ModuleEntry32
	me.Size = uint32(unsafe.Sizeof(me))

	if err := windows.Module32First(snap, &me); err != nil {
		return nil, fmt.Errorf("Module32First: %w", err)
	}

	var mods []memory.ModuleInfo
	for {
		mods = append(mods, memory.ModuleInfo{
			Name: windows.UTF16ToString(me.Module[:]),
			Base: uint64(me.ModBaseAddr),
			Size: uint64(me.ModBaseSize),
		})
		if err := windows.Module32Next(snap, &me); err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
				break
			}
			return nil, fmt.Errorf("Module32Next: %w", err)
		}
	}
	return mods, nil
}

func (p *winProcess) ReadMemory(addr uint64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	var n uintptr
	if err := windows.ReadProcessMemory(p.handle, uintptr(addr), &buf[0], uintptr(len(buf)), &n); err != nil {
		return fmt.Errorf("ReadProcessMemory %#x: %w", addr, err)
	}
	if n != uintptr(len(buf)) {
		return fmt.Errorf("ReadProcessMemory %#x: short read %d of %d", addr, n, len(buf))
	}
	return nil
}

func (p *winProcess) PointerWidth() memory.PointerWidth {
	return p.width
}

func (p *winProcess) Close() error {
	return windows.CloseHandle(p.handle)
}
