package postgres

import "geoetl/internal/storage"

func init() {
	// registers the destination backend factory
	storage.Register("postgres", New)
}
