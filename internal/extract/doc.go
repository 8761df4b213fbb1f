// Package extract holds the harvest.Extractor implementations: the two-stage
// cadastral registry lookup, address geocoding, bounding-box feature queries
// and HTML page scraping, plus the Catalog that builds them by name.
package extract
