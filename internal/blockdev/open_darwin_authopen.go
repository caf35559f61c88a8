//go:build darwin && authopen

package blockdev

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/jgarman/cardflash/internal/devices"
)

// open under the authopen build tag delegates the privileged open to the
// system's /usr/libexec/authopen helper, which raises the standard macOS
// authorization dialog and hands the descriptor back over a unix socket.
// This is how unprivileged GUI sessions get raw disk access.
func open(dst devices.Destination) (*Device, error) {
	_ = exec.Command("diskutil", "unmountDisk", dst.Path).Run()

	fd, err := authopen(dst.Path)
	if err != nil {
		return nil, err
	}

	return &Device{
		f:         os.NewFile(uintptr(fd), dst.Path),
		path:      dst.Path,
		blockSize: normalizeBlockSize(dst.BlockSize),
		eject: func() error {
			return exec.Command("diskutil", "eject", dst.Path).Run()
		},
	}, nil
}

// authopen runs the helper with -stdoutpipe and receives the opened
// descriptor via SCM_RIGHTS.
func authopen(path string) (int, error) {
	pair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("failed to create socket pair: %w", err)
	}
	recvSock := pair[0]
	sendSock := os.NewFile(uintptr(pair[1]), "authopen-stdout")
	defer unix.Close(recvSock)
	defer sendSock.Close()

	cmd := exec.Command("/usr/libexec/authopen",
		"-stdoutpipe", "-o", strconv.Itoa(os.O_RDWR), path)
	cmd.Stdout = sendSock
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start authopen: %w", err)
	}
	// Close our copy so Recvmsg sees EOF if the helper exits without
	// sending a descriptor.
	sendSock.Close()

	buf := make([]byte, 64)
	oob := make([]byte, unix.CmsgSpace(4))
	_, oobn, _, _, err := unix.Recvmsg(recvSock, buf, oob, 0)
	werr := cmd.Wait()
	if err != nil {
		return -1, fmt.Errorf("failed to receive descriptor from authopen: %w", err)
	}
	if werr != nil {
		// Non-zero exit means the user dismissed the prompt or the
		// authorization was denied.
		return -1, fmt.Errorf("%s: %w", path, ErrPermissionDenied)
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil || len(msgs) == 0 {
		return -1, fmt.Errorf("authopen sent no control message for %s", path)
	}
	fds, err := unix.ParseUnixRights(&msgs[0])
	if err != nil || len(fds) == 0 {
		return -1, fmt.Errorf("authopen sent no descriptor for %s", path)
	}
	return fds[0], nil
}
