// Package webrtc answers the streaming server offer with a local peer.
package webrtc

import (
	"github.com/opencloud/opencloud/pkg/config"
	"github.com/opencloud/opencloud/pkg/logger"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

type ApiFactory struct {
	api     *webrtc.API
	servers []webrtc.ICEServer
	log     *logger.Logger
}

type ModApiFun func(m *webrtc.MediaEngine, i *interceptor.Registry, s *webrtc.SettingEngine)

func NewApiFactory(conf config.Webrtc, log *logger.Logger, mod ModApiFun) (api *ApiFactory, err error) {
	m := &webrtc.MediaEngine{}
	if err = m.RegisterDefaultCodecs(); err != nil {
		return
	}
	i := &interceptor.Registry{}
	if !conf.DisableDefaultInterceptors {
		if err = webrtc.RegisterDefaultInterceptors(m, i); err != nil {
			return
		}
	}
	customLogger := logger.NewPionLogger(log, conf.LogLevel)
	s := webrtc.SettingEngine{LoggerFactory: customLogger}

	if mod != nil {
		mod(m, i, &s)
	}

	var servers []webrtc.ICEServer
	for _, server := range conf.IceServers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{server.Urls},
			Username:   server.Username,
			Credential: server.Credential,
		})
	}

	return &ApiFactory{
		api:     webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i), webrtc.WithSettingEngine(s)),
		servers: servers,
		log:     log,
	}, nil
}

// NewPeer makes a peer with the ICE servers of the session,
// or the configured ones when there are none.
func (a *ApiFactory) NewPeer(servers []webrtc.ICEServer) (*Peer, error) {
	if len(servers) == 0 {
		servers = a.servers
	}
	conn, err := a.api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, err
	}
	return newPeer(conn, a.log), nil
}
