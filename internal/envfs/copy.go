package envfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
)

// FileCopier copies through a FileSystem, writing a temp sibling and
// renaming it over the destination.
type FileCopier struct {
	fs FileSystem
}

// NewFileCopier creates a FileCopier. If fsys is nil, the OS file system is used.
func NewFileCopier(fsys FileSystem) *FileCopier {
	if fsys == nil {
		fsys = OSFileSystem{}
	}
	return &FileCopier{fs: fsys}
}

// Copy replaces dst with the content of src. An existing dst keeps its
// permission bits; a new dst takes those of src.
func (c *FileCopier) Copy(ctx context.Context, src, dst string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := c.fs.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}

	perm := PermOf(c.fs, 0644, dst, src)
	return WriteAtomic(c.fs, dst, data, perm)
}

// CommandCopier copies by running an external cp through a privilege
// escalation prefix such as "sudo -n".
type CommandCopier struct {
	prefix []string
}

// NewSudoCopier returns a CommandCopier that runs "sudo -n cp".
// -n keeps sudo from prompting, since the watcher has no terminal.
func NewSudoCopier() *CommandCopier {
	return &CommandCopier{prefix: []string{"sudo", "-n"}}
}

// NewCommandCopier returns a CommandCopier using the given prefix.
func NewCommandCopier(prefix ...string) *CommandCopier {
	return &CommandCopier{prefix: prefix}
}

// Copy runs "<prefix> cp src dst".
func (c *CommandCopier) Copy(ctx context.Context, src, dst string) error {
	args := append(append([]string{}, c.prefix...), "cp", src, dst)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", strings.Join(args, " "), err, msg)
		}
		return fmt.Errorf("%s: %w", strings.Join(args, " "), err)
	}

	return nil
}

// FallbackCopier tries Primary and, only when it fails with a permission
// error, retries once with Privileged.
type FallbackCopier struct {
	Primary    Copier
	Privileged Copier
}

// Copy implements Copier.
func (c *FallbackCopier) Copy(ctx context.Context, src, dst string) error {
	err := c.Primary.Copy(ctx, src, dst)
	if err == nil || c.Privileged == nil || !errors.Is(err, fs.ErrPermission) {
		return err
	}

	if perr := c.Privileged.Copy(ctx, src, dst); perr != nil {
		return fmt.Errorf("privileged copy after %v: %w", err, perr)
	}
	return nil
}
