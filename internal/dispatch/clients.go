package dispatch

import (
	"github.com/netprobe/internal/config"
	"github.com/netprobe/pkg/protocol"
	"github.com/spf13/afero"
)

// NewClients builds one client per protocol kind. The file client reads
// through fs and sends over the TCP client.
func NewClients(cfg config.Transport, fs afero.Fs) map[config.Protocol]protocol.Client {
	clientCfg := protocol.ClientConfig{
		DialTimeout: cfg.DialTimeout,
		TLSInsecure: cfg.TLSInsecure,
		HalfClose:   cfg.HalfClose,
	}

	tcp := protocol.NewTCPClient(clientCfg)
	return map[config.Protocol]protocol.Client{
		config.ProtocolTCP:   tcp,
		config.ProtocolUDP:   protocol.NewUDPClient(clientCfg),
		config.ProtocolHTTP:  protocol.NewHTTPClient(clientCfg),
		config.ProtocolHTTPS: protocol.NewHTTPClient(clientCfg),
		config.ProtocolFile:  protocol.NewFileClient(fs, tcp),
	}
}

// CloseClients closes every client.
func CloseClients(clients map[config.Protocol]protocol.Client) {
	for _, c := range clients {
		c.Close()
	}
}
