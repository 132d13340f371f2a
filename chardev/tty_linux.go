//go:build linux

package chardev

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// TTYBackend is a Backend over a real terminal device, speaking to the
// kernel through golang.org/x/sys/unix's typed termios ioctls rather
// than a raw untyped syscall, the same io-control shape the teacher's
// KVM wrappers use for their own ioctls.
type TTYBackend struct {
	mu sync.Mutex

	fd     int
	path   string
	closed bool

	recv  func(b byte)
	watch func()

	readBuf [256]byte
}

// OpenTTY opens path (e.g. "/dev/ttyUSB0") in non-blocking mode and
// starts the background reader that feeds SetReceiveFunc.
func OpenTTY(path string) (*TTYBackend, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("chardev: open %s: %w", path, err)
	}
	t := &TTYBackend{fd: fd, path: path}
	if err := t.makeRaw(); err != nil {
		unix.Close(fd)
		return nil, err
	}
	go t.readLoop()
	return t, nil
}

func (t *TTYBackend) makeRaw() error {
	attr, err := unix.IoctlGetTermios(t.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("chardev: TCGETS %s: %w", t.path, err)
	}
	attr.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	attr.Oflag &^= unix.OPOST
	attr.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	attr.Cflag &^= unix.CSIZE | unix.PARENB
	attr.Cflag |= unix.CS8
	attr.Cc[unix.VMIN] = 0
	attr.Cc[unix.VTIME] = 0
	return unix.IoctlSetTermios(t.fd, unix.TCSETS, attr)
}

func (t *TTYBackend) readLoop() {
	for {
		n, err := unix.Read(t.fd, t.readBuf[:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				t.waitReadable()
				continue
			}
			return
		}
		if n <= 0 {
			return
		}
		t.mu.Lock()
		recv := t.recv
		t.mu.Unlock()
		if recv == nil {
			continue
		}
		for _, b := range t.readBuf[:n] {
			recv(b)
		}
	}
}

func (t *TTYBackend) waitReadable() {
	fds := []unix.PollFd{{Fd: int32(t.fd), Events: unix.POLLIN}}
	unix.Poll(fds, 1000)
}

func (t *TTYBackend) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return len(p), nil
	}
	n, err := unix.Write(t.fd, p)
	if err != nil {
		if err == unix.EAGAIN {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

func (t *TTYBackend) SetReceiveFunc(fn func(b byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recv = fn
}

func (t *TTYBackend) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

func (t *TTYBackend) Watch(onWritable func()) (func(), bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.watch = onWritable
	go t.fireWhenWritable(onWritable)
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.watch = nil
	}, true
}

func (t *TTYBackend) fireWhenWritable(cb func()) {
	fds := []unix.PollFd{{Fd: int32(t.fd), Events: unix.POLLOUT}}
	if _, err := unix.Poll(fds, -1); err != nil {
		return
	}
	t.mu.Lock()
	armed := t.watch
	t.watch = nil
	t.mu.Unlock()
	if armed != nil {
		armed()
	}
	_ = cb
}

var standardSpeeds = map[int]uint32{
	50: unix.B50, 110: unix.B110, 300: unix.B300, 600: unix.B600,
	1200: unix.B1200, 2400: unix.B2400, 4800: unix.B4800, 9600: unix.B9600,
	19200: unix.B19200, 38400: unix.B38400, 57600: unix.B57600,
	115200: unix.B115200, 230400: unix.B230400,
}

func (t *TTYBackend) Configure(speed int, parity Parity, dataBits, stopBits int) error {
	baud, ok := standardSpeeds[speed]
	if !ok {
		return &ErrUnsupportedConfig{Speed: speed, Parity: parity, DataBits: dataBits, StopBits: stopBits}
	}
	var csize uint32
	switch dataBits {
	case 5:
		csize = unix.CS5
	case 6:
		csize = unix.CS6
	case 7:
		csize = unix.CS7
	case 8:
		csize = unix.CS8
	default:
		return &ErrUnsupportedConfig{Speed: speed, Parity: parity, DataBits: dataBits, StopBits: stopBits}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	attr, err := unix.IoctlGetTermios(t.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("chardev: TCGETS %s: %w", t.path, err)
	}
	attr.Cflag &^= unix.CBAUD | unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB
	attr.Cflag |= baud | csize
	switch parity {
	case ParityEven:
		attr.Cflag |= unix.PARENB
	case ParityOdd:
		attr.Cflag |= unix.PARENB | unix.PARODD
	}
	if stopBits == 2 {
		attr.Cflag |= unix.CSTOPB
	}
	attr.Ispeed = baud
	attr.Ospeed = baud
	if err := unix.IoctlSetTermios(t.fd, unix.TCSETS, attr); err != nil {
		return fmt.Errorf("chardev: TCSETS %s: %w", t.path, err)
	}
	return nil
}

// Close releases the underlying file descriptor.
func (t *TTYBackend) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return unix.Close(t.fd)
}
