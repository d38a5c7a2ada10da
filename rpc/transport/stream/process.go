package stream

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/ValentinKolb/dVol/rpc/serializer"
	"github.com/ValentinKolb/dVol/rpc/transport"
)

// processExitTimeout is how long Close waits for a worker process to exit
// after its stdin was closed before it is killed.
const processExitTimeout = 5 * time.Second

// process is the coordinator's connection to a worker child process
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	exited chan error
}

// Spawn starts the worker process described by args (program and arguments)
// and returns a transport speaking to it over stdin/stdout using ser. The
// child's stderr is passed through so its log output stays visible.
func Spawn(args []string, ser serializer.IRPCSerializer) (transport.IWorkerTransport, error) {
	if len(args) == 0 {
		return nil, errors.New("no worker command given")
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker %q: %w", args[0], err)
	}

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		exited: make(chan error, 1),
	}
	go func() {
		p.exited <- cmd.Wait()
	}()

	Logger.Infof("Started worker process %d (%s)", cmd.Process.Pid, args[0])
	return New(p, ser), nil
}

func (p *process) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p *process) Write(b []byte) (int, error) { return p.stdin.Write(b) }

// Close ends the worker by closing its stdin and waits for it to exit
func (p *process) Close() error {
	p.stdin.Close()

	select {
	case err := <-p.exited:
		if err != nil {
			Logger.Warningf("Worker process %d exited: %v", p.cmd.Process.Pid, err)
		} else {
			Logger.Debugf("Worker process %d exited", p.cmd.Process.Pid)
		}
		return nil
	case <-time.After(processExitTimeout):
		Logger.Warningf("Worker process %d did not exit within %s, killing it", p.cmd.Process.Pid, processExitTimeout)
		if err := p.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill worker process %d: %w", p.cmd.Process.Pid, err)
		}
		<-p.exited
		return nil
	}
}
