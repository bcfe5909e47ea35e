package services

import (
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"chat-server/models"
	"chat-server/utils"
)

// MaxUploadSize is the largest accepted attachment.
const MaxUploadSize = 50 << 20

// Storage keeps attachment bytes and resolves their locators to URLs.
type Storage struct {
	fs      afero.Fs
	baseURL string
}

// NewStorage stores files under root on fs. baseURL is the public prefix
// files are served from.
func NewStorage(fs afero.Fs, root, baseURL string) *Storage {
	if root != "" {
		fs = afero.NewBasePathFs(fs, root)
	}
	return &Storage{fs: fs, baseURL: strings.TrimRight(baseURL, "/")}
}

// Put writes r as a new file for an attachment of the given kind and returns
// its pathname, e.g. "chat-files/images/<uuid>.jpg".
func (s *Storage) Put(kind, filename string, r io.Reader) (string, error) {
	if !models.ValidAttachmentType(kind) {
		return "", utils.Validation("type", "unknown attachment type")
	}

	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		ext = defaultExt(kind)
	}
	pathname := path.Join("chat-files", kind+"s", uuid.NewString()+"."+ext)

	if err := s.fs.MkdirAll(path.Dir(pathname), 0o755); err != nil {
		return "", utils.Internal(err, "create storage dir")
	}
	f, err := s.fs.Create(pathname)
	if err != nil {
		return "", utils.Internal(err, "create file")
	}
	n, err := io.Copy(f, io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		_ = f.Close()
		_ = s.fs.Remove(pathname)
		return "", utils.Internal(err, "write file")
	}
	if n > MaxUploadSize {
		_ = f.Close()
		_ = s.fs.Remove(pathname)
		return "", utils.Validation("file", "file is larger than 50MB")
	}
	if err := f.Close(); err != nil {
		return "", utils.Internal(err, "close file")
	}
	return pathname, nil
}

// Open returns a reader for a stored file. Directories are not served.
func (s *Storage) Open(pathname string) (afero.File, error) {
	clean := path.Clean("/" + pathname)[1:]
	f, err := s.fs.Open(clean)
	if err != nil {
		return nil, utils.NotFound("file not found")
	}
	st, err := f.Stat()
	if err != nil || st.IsDir() {
		_ = f.Close()
		return nil, utils.NotFound("file not found")
	}
	return f, nil
}

// URL resolves a pathname to a fetchable URL.
func (s *Storage) URL(pathname string) string {
	if pathname == "" {
		return ""
	}
	if strings.HasPrefix(pathname, "http://") || strings.HasPrefix(pathname, "https://") {
		return pathname
	}
	return s.baseURL + "/" + strings.TrimLeft(pathname, "/")
}

func defaultExt(kind string) string {
	switch kind {
	case models.AttachmentImage:
		return "jpg"
	case models.AttachmentVideo:
		return "mp4"
	case models.AttachmentVoice:
		return "m4a"
	}
	return "bin"
}
