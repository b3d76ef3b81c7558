// Package plugin hosts subprocess natives: external executables that
// speak newline-delimited JSON on stdin/stdout and are surfaced to
// scripts as registry entries with a declared arity.
package plugin

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/tliron/commonlog"

	"swiftlet-vm/internal/native"
	"swiftlet-vm/internal/value"
)

var log = commonlog.GetLogger("swiftlet.plugin")

// Request sent to plugin
type Request struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// Response received from plugin
type Response struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

type Client struct {
	Name string

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Scanner
	running bool
	mu      sync.Mutex
}

// Load starts a plugin process. The executable is resolved on PATH first,
// then under swiftlet_libs/<name>/, then in the current directory.
func Load(name, executable string) (*Client, error) {
	execPath, err := resolveExecutable(name, executable)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(execPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("plugin %s: stdin pipe: %w", name, err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("plugin %s: stdout pipe: %w", name, err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("plugin %s: start: %w", name, err)
	}
	log.Infof("loaded plugin %s (%s)", name, execPath)

	return &Client{
		Name:    name,
		cmd:     cmd,
		stdin:   stdin,
		stdout:  bufio.NewScanner(stdoutPipe),
		running: true,
	}, nil
}

func resolveExecutable(name, executable string) (string, error) {
	if path, err := exec.LookPath(executable); err == nil {
		return path, nil
	}
	libPath := filepath.Join("swiftlet_libs", name, executable)
	if _, err := os.Stat(libPath); err == nil {
		return filepath.Abs(libPath)
	}
	if _, err := os.Stat(executable); err == nil {
		return filepath.Abs(executable)
	}
	return "", fmt.Errorf("plugin %s: executable %q not found", name, executable)
}

// Call performs one request/response round trip.
func (c *Client) Call(method string, args []value.Value) (value.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return value.NewNull(), fmt.Errorf("plugin %s is not running", c.Name)
	}

	params := make([]interface{}, len(args))
	for i, arg := range args {
		params[i] = valueToInterface(arg)
	}
	reqBytes, err := json.Marshal(Request{Method: method, Params: params})
	if err != nil {
		return value.NewNull(), fmt.Errorf("plugin %s: marshal request: %w", c.Name, err)
	}

	if _, err := c.stdin.Write(append(reqBytes, '\n')); err != nil {
		c.running = false
		return value.NewNull(), fmt.Errorf("plugin %s: write: %w", c.Name, err)
	}

	if !c.stdout.Scan() {
		c.running = false
		if err := c.stdout.Err(); err != nil {
			return value.NewNull(), fmt.Errorf("plugin %s: read: %w", c.Name, err)
		}
		return value.NewNull(), fmt.Errorf("plugin %s: unexpected EOF", c.Name)
	}

	var resp Response
	if err := json.Unmarshal(c.stdout.Bytes(), &resp); err != nil {
		return value.NewNull(), fmt.Errorf("plugin %s: unmarshal response: %w", c.Name, err)
	}
	if resp.Error != "" {
		return value.NewNull(), fmt.Errorf("%s", resp.Error)
	}
	return interfaceToValue(resp.Result), nil
}

// Native wraps one plugin method as a registry entry.
func (c *Client) Native(method string, arity int) native.Func {
	return native.Func{
		Name:  method,
		Arity: arity,
		Fn: func(args []value.Value) (value.Value, error) {
			return c.Call(method, args)
		},
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	c.stdin.Close()
	return c.cmd.Wait()
}

// Helpers to convert between Value and Go interface{} for JSON

func valueToInterface(v value.Value) interface{} {
	switch v.Type {
	case value.VAL_NULL:
		return nil
	case value.VAL_BOOL:
		return v.AsBool
	case value.VAL_INT:
		return v.AsInt
	case value.VAL_DOUBLE:
		return v.AsDouble
	case value.VAL_STRING:
		return v.Str
	default:
		return v.String()
	}
}

func interfaceToValue(i interface{}) value.Value {
	if i == nil {
		return value.NewNull()
	}
	switch v := i.(type) {
	case bool:
		return value.NewBool(v)
	case float64:
		// JSON numbers are floats; collapse whole values to Int.
		if float64(int64(v)) == v {
			return value.NewInt(int64(v))
		}
		return value.NewDouble(v)
	case string:
		return value.NewString(v)
	default:
		return value.NewString(fmt.Sprintf("%v", v))
	}
}
