package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/0xef53/phoenix-fm/core"

	"github.com/dustin/go-humanize"
)

func printObjects(w io.Writer, objs []*core.FileSystemObject) {
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', tabwriter.AlignRight)

	for _, obj := range objs {
		if obj.Type == core.TypeParentDirectory {
			continue
		}

		size := humanize.IBytes(uint64(obj.Size))

		if obj.Type == core.TypeBlockDevice || obj.Type == core.TypeCharacterDevice {
			size = fmt.Sprintf("%d, %d", obj.Major, obj.Minor)
		}

		name := obj.Name
		if obj.Type == core.TypeSymlink && len(obj.LinkPath) > 0 {
			name += " -> " + obj.LinkPath
		}

		fmt.Fprintf(tw, "%c%s\t %s\t %s\t %s\t %s\t %s\t\n",
			obj.Type,
			obj.Permissions.Raw(),
			obj.User.Name,
			obj.Group.Name,
			size,
			obj.LastModified.Format("2006-01-02 15:04"),
			name,
		)
	}

	tw.Flush()
}

func printObject(w io.Writer, obj *core.FileSystemObject) {
	fmt.Fprintf(w, "  Path: %s\n", obj.FullPath())
	fmt.Fprintf(w, "  Type: %s\n", obj.Type)
	fmt.Fprintf(w, "  Size: %s (%d bytes)\n", humanize.IBytes(uint64(obj.Size)), obj.Size)
	fmt.Fprintf(w, "Access: %s (%s)  Uid: %d/%s  Gid: %d/%s\n",
		obj.Permissions.Octal(), obj.Permissions.Raw(),
		obj.User.ID, obj.User.Name,
		obj.Group.ID, obj.Group.Name,
	)
	fmt.Fprintf(w, "Modify: %s (%s)\n", obj.LastModified.Format("2006-01-02 15:04:05"), humanize.Time(obj.LastModified))

	if !obj.LastAccessed.IsZero() {
		fmt.Fprintf(w, "Access: %s\n", obj.LastAccessed.Format("2006-01-02 15:04:05"))
	}

	if len(obj.LinkPath) > 0 {
		fmt.Fprintf(w, "  Link: %s\n", obj.LinkPath)
	}

	if obj.Secure {
		fmt.Fprintln(w, "Secure: yes")
	}
}

func printDiskUsage(w io.Writer, items []core.DiskUsage) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "Mounted on\tSize\tUsed\tAvail\tUse%\t")

	for _, du := range items {
		var pct uint64
		if du.Total > 0 {
			pct = du.Used * 100 / du.Total
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d%%\t\n",
			du.MountPoint,
			humanize.IBytes(du.Total),
			humanize.IBytes(du.Used),
			humanize.IBytes(du.Free),
			pct,
		)
	}

	tw.Flush()
}

func printFolderUsage(w io.Writer, u core.FolderUsage) {
	fmt.Fprintf(w, "%s\t%s in %s files, %s folders\n",
		u.Directory,
		humanize.IBytes(uint64(u.Size)),
		humanize.Comma(int64(u.Files)),
		humanize.Comma(int64(u.Folders)),
	)
}

// printPartial writes one partial result of an asynchronous command.
func printPartial(v any) {
	switch x := v.(type) {
	case []byte:
		os.Stdout.Write(x)
	case string:
		fmt.Println(x)
	case *core.FileSystemObject:
		fmt.Println(x.FullPath())
	case core.Checksum:
		fmt.Printf("%s\t%s\n", x.Type, x.Value)
	case core.FolderUsage:
		// Only the final total is printed, see runAsync
	default:
		fmt.Println(x)
	}
}
