// Package fetcher talks to the outside world for the harvester: throttled,
// retried HTTP requests against scraping targets, plus HTTP/FTP downloads and
// archive/XML helpers for loading work item sources.
package fetcher

import (
	"context"
	"io"
	"net/url"

	"github.com/rotisserie/eris"
)

// Downloader retrieves a remote file.
type Downloader interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Remote routes downloads to the HTTP or FTP fetcher by URL scheme.
type Remote struct {
	HTTP Downloader
	FTP  Downloader
}

// NewRemote builds a Remote. A nil ftp fetcher gets default options.
func NewRemote(httpF Downloader, ftpF Downloader) *Remote {
	if ftpF == nil {
		ftpF = NewFTPFetcher(FTPOptions{})
	}
	return &Remote{HTTP: httpF, FTP: ftpF}
}

// IsRemote reports whether s looks like a URL Remote can download.
func IsRemote(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "ftp":
		return u.Host != ""
	}
	return false
}

func (r *Remote) pick(rawURL string) (Downloader, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	switch u.Scheme {
	case "http", "https":
		if r.HTTP == nil {
			return nil, eris.New("fetcher: no http fetcher configured")
		}
		return r.HTTP, nil
	case "ftp":
		return r.FTP, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

// Download implements Downloader.
func (r *Remote) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	d, err := r.pick(rawURL)
	if err != nil {
		return nil, err
	}
	return d.Download(ctx, rawURL)
}

// DownloadToFile implements Downloader.
func (r *Remote) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	d, err := r.pick(rawURL)
	if err != nil {
		return 0, err
	}
	return d.DownloadToFile(ctx, rawURL, path)
}
