package hasher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Digester computes the content digest of one file.
//
// Implementations must honor ctx: when it is done the digest is abandoned
// and ctx.Err() (or an error wrapping it) is returned.
type Digester interface {
	Digest(ctx context.Context, path string) (string, error)

	// Name identifies the digest method in hash snapshots.
	Name() string
}

// SHA256Digester hashes files in-process. Its output is identical to
// sha256sum(1).
type SHA256Digester struct {
	// BufferSize is the read buffer size; 1 MiB when zero.
	BufferSize int
}

// Name implements Digester.
func (d SHA256Digester) Name() string { return "sha256 (native)" }

// Digest implements Digester.
func (d SHA256Digester) Digest(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	size := d.BufferSize
	if size <= 0 {
		size = 1 << 20
	}
	h := sha256.New()
	if _, err := io.CopyBuffer(h, &ctxReader{ctx: ctx, r: f}, make([]byte, size)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ctxReader fails the next Read once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// CommandDigester delegates to an external checksum tool. The process is
// killed when the context expires.
type CommandDigester struct {
	// Argv is the command without the file argument, e.g. ["sha256sum"].
	Argv []string
}

// NewCommandDigester returns the platform's sha256 tool: shasum -a 256 on
// darwin, sha256sum elsewhere.
func NewCommandDigester(goos string) *CommandDigester {
	if goos == "darwin" {
		return &CommandDigester{Argv: []string{"shasum", "-a", "256"}}
	}
	return &CommandDigester{Argv: []string{"sha256sum"}}
}

// Name implements Digester.
func (d *CommandDigester) Name() string { return strings.Join(d.Argv, " ") }

// Digest implements Digester.
func (d *CommandDigester) Digest(ctx context.Context, path string) (string, error) {
	if len(d.Argv) == 0 {
		return "", fmt.Errorf("digest command not configured")
	}
	args := append(append([]string(nil), d.Argv[1:]...), "--", path)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.Argv[0], args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", d.Name(), err, bytes.TrimSpace(stderr.Bytes()))
	}
	return ParseChecksumLine(string(out))
}

// ParseChecksumLine extracts the digest from one line of sha256sum-style
// output. GNU tools prefix the line with a backslash when the file name
// needed escaping.
func ParseChecksumLine(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty checksum output")
	}
	digest := strings.TrimPrefix(fields[0], `\`)
	if len(digest) != sha256.Size*2 {
		return "", fmt.Errorf("malformed checksum %q", digest)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", fmt.Errorf("malformed checksum %q", digest)
	}
	return strings.ToLower(digest), nil
}
