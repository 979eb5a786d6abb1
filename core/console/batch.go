package console

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/0xef53/phoenix-fm/core"
	"github.com/0xef53/phoenix-fm/core/executable"

	log "github.com/sirupsen/logrus"
)

// Pair is a source and a destination of a copy or move.
type Pair struct {
	Src string
	Dst string
}

// DeletionOrder returns the objects sorted in reverse path order,
// so that every descendant precedes its ancestors.
func DeletionOrder(objs []*core.FileSystemObject) []*core.FileSystemObject {
	sorted := slices.Clone(objs)

	slices.SortStableFunc(sorted, func(a, b *core.FileSystemObject) int {
		return strings.Compare(b.FullPath(), a.FullPath())
	})

	return sorted
}

// DeleteAll deletes the objects in reverse path order. Objects that no
// longer exist are skipped; the first other failure aborts the batch.
func DeleteAll(ctx context.Context, f Factory, objs []*core.FileSystemObject) error {
	for _, obj := range DeletionOrder(objs) {
		if obj.Type == core.TypeParentDirectory {
			continue
		}

		p := obj.FullPath()

		var (
			exe executable.Synchronous[bool]
			err error
		)

		if obj.Type == core.TypeDirectory {
			exe, err = f.DeleteDirectory(p)
		} else {
			exe, err = f.DeleteFile(p)
		}
		if err != nil {
			return err
		}

		if err := runBatchStep(ctx, exe, "delete", p); err != nil {
			return err
		}
	}

	return nil
}

// CopyAll copies every pair in order with the same failure policy as DeleteAll.
func CopyAll(ctx context.Context, f Factory, pairs []Pair) error {
	for _, p := range pairs {
		exe, err := f.Copy(p.Src, p.Dst)
		if err != nil {
			return err
		}

		if err := runBatchStep(ctx, exe, "copy", p.Src); err != nil {
			return err
		}
	}

	return nil
}

// MoveAll moves every pair in order with the same failure policy as DeleteAll.
func MoveAll(ctx context.Context, f Factory, pairs []Pair) error {
	for _, p := range pairs {
		exe, err := f.Move(p.Src, p.Dst)
		if err != nil {
			return err
		}

		if err := runBatchStep(ctx, exe, "move", p.Src); err != nil {
			return err
		}
	}

	return nil
}

func runBatchStep(ctx context.Context, exe executable.Synchronous[bool], op, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := executable.Run(ctx, exe); err != nil {
		if core.IsNotExist(err) {
			log.WithField("path", p).Debugf("Skipping %s: no longer exists", op)
			return nil
		}

		return fmt.Errorf("%s %s: %w", op, p, err)
	}

	return nil
}
