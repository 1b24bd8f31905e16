package ingest

import "errors"

var ErrInvalidRequest = errors.New("invalid ingest request")
