package natmod

import (
	"archive/tar"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// tarDecoder wraps a raw archive stream in its decompressor.
type tarDecoder func(r io.Reader) (io.ReadCloser, error)

// Toolchain archives natmod knows how to unpack, by file name suffix.
var tarDecoders = []struct {
	suffixes []string
	open     tarDecoder
}{
	{[]string{".tar.gz", ".tgz"}, func(r io.Reader) (io.ReadCloser, error) {
		return pgzip.NewReader(r)
	}},
	{[]string{".tar.xz", ".txz"}, func(r io.Reader) (io.ReadCloser, error) {
		xr, err := xz.NewReader(r)
		return io.NopCloser(xr), err
	}},
	{[]string{".tar.zst"}, func(r io.Reader) (io.ReadCloser, error) {
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	}},
	{[]string{".tar.bz2"}, func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(bzip2.NewReader(r)), nil
	}},
	{[]string{".tar"}, func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(r), nil
	}},
}

// extractArchive unpacks src into dest, choosing the decoder from the file
// name. Archive layout is preserved.
func extractArchive(src, dest string) error {
	dest, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	name := strings.ToLower(src)
	if strings.HasSuffix(name, ".zip") {
		return extractZip(src, dest)
	}
	for _, d := range tarDecoders {
		for _, suffix := range d.suffixes {
			if strings.HasSuffix(name, suffix) {
				return extractTar(src, dest, d.open)
			}
		}
	}
	return fmt.Errorf("unsupported archive format: %s", src)
}

// archiveName derives the local file name for a downloaded archive URL.
func archiveName(url string) string {
	base := url
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	base = base[strings.LastIndex(base, "/")+1:]
	if base == "" {
		return "toolchain.zip"
	}
	return base
}

// safeJoin joins name onto dest and rejects entries escaping dest (zip slip).
func safeJoin(dest, name string) (string, error) {
	fpath := filepath.Join(dest, name)
	if fpath != dest && !strings.HasPrefix(fpath, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal file path in archive: %s", name)
	}
	return fpath, nil
}

// writeEntry creates target with mode and fills it from r.
func writeEntry(target string, mode os.FileMode, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func extractZip(src, dest string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", src, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		err = writeEntry(target, f.Mode().Perm(), rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
	}
	return nil
}

// extractTar unpacks a tar stream decoded by open. PAX headers and device
// entries are skipped; modification times are kept.
func extractTar(src, dest string, open tarDecoder) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", src, err)
	}
	defer f.Close()

	stream, err := open(f)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", src, err)
	}
	defer stream.Close()

	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("corrupt archive %s: %w", src, err)
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		if target == dest {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(target, os.FileMode(hdr.Mode).Perm()|0o700)
		case tar.TypeReg:
			err = writeEntry(target, os.FileMode(hdr.Mode).Perm(), tr)
			if err == nil {
				keepModTime(target, hdr.ModTime)
			}
		case tar.TypeSymlink:
			if err = checkSymlink(dest, target, hdr.Linkname); err == nil {
				err = linkEntry(target, func() error { return os.Symlink(hdr.Linkname, target) })
			}
		case tar.TypeLink:
			var from string
			if from, err = safeJoin(dest, hdr.Linkname); err == nil {
				err = linkEntry(target, func() error { return os.Link(from, target) })
			}
		default:
			debugf("skipping %s (tar type %c)", hdr.Name, hdr.Typeflag)
		}
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
		}
	}
}

// checkSymlink rejects a link whose target resolves outside dest, since later
// entries would be written through it.
func checkSymlink(dest, target, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("illegal symlink target in archive: %s -> %s", target, linkname)
	}
	if !isWithin(filepath.Join(filepath.Dir(target), linkname), dest) {
		return fmt.Errorf("illegal symlink target in archive: %s -> %s", target, linkname)
	}
	return nil
}

func linkEntry(target string, link func() error) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := link(); err != nil && !os.IsExist(err) {
		return err
	}
	return nil
}

func keepModTime(path string, mtime time.Time) {
	if mtime.IsZero() {
		return
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		debugf("failed to set times for %s: %v", path, err)
	}
}
