package scraper

import "errors"

var (
	ErrTooShort      = errors.New("article text below minimum word count")
	ErrUnknownFormat = errors.New("unrecognized feed or sitemap format")
)

func asHTTPError(err error, target **HTTPError) bool {
	return errors.As(err, target)
}
