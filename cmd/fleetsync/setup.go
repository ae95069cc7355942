package main

import (
	"log/slog"
	"time"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/fleetsync/fleetsync/internal/config"
	"github.com/fleetsync/fleetsync/internal/connection"
)

const dialTimeout = 5 * time.Second

func newDialer(cfg config.ClientConfig) connection.Dialer {
	if cfg.Transport == config.TransportWebSocket {
		return connection.WebSocketDialer{Path: cfg.Path}
	}
	return connection.TCPDialer{Timeout: dialTimeout}
}

// footprintLogger writes each loiter footprint as WKT at debug level.
type footprintLogger struct {
	logger *slog.Logger
}

func (f footprintLogger) LoiterFootprint(vehicleID int64, footprint geom.Polygon) {
	f.logger.Debug("Loiter footprint", "vehicleId", vehicleID, "epsg", 3857, "wkt", footprint.AsText())
}
