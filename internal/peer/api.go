package peer

import (
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"
)

// APIOptions configures the pion API shared by every session of a client.
type APIOptions struct {
	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string

	// ForceRelay restricts ICE to relay candidates when a TURN server is
	// configured.
	ForceRelay bool

	// Net replaces the host network, e.g. with a vnet in tests.
	Net transport.Net

	// LoggerFactory routes pion's own logs. Nil uses pion's default.
	LoggerFactory logging.LoggerFactory

	// ICEDisconnectedTimeout and ICEFailedTimeout override pion's
	// defaults when non-zero.
	ICEDisconnectedTimeout time.Duration
	ICEFailedTimeout       time.Duration
}

// API builds peer connections with the audio codec and ICE setup every
// session shares.
type API struct {
	api    *webrtc.API
	config webrtc.Configuration
}

// NewAPI creates the pion API: G.711 audio, default interceptors and the
// configured ICE servers.
func NewAPI(opts APIOptions) (*API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: AudioCodec(),
		PayloadType:        0,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, newError("register codec", "", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, newError("register interceptors", "", err)
	}

	se := webrtc.SettingEngine{}
	if opts.Net != nil {
		se.SetNet(opts.Net)
	}
	if opts.LoggerFactory != nil {
		se.LoggerFactory = opts.LoggerFactory
	}
	if opts.ICEDisconnectedTimeout > 0 || opts.ICEFailedTimeout > 0 {
		disconnected, failed := opts.ICEDisconnectedTimeout, opts.ICEFailedTimeout
		if disconnected == 0 {
			disconnected = 5 * time.Second
		}
		if failed == 0 {
			failed = 25 * time.Second
		}
		se.SetICETimeouts(disconnected, failed, 2*time.Second)
	}

	return &API{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithInterceptorRegistry(ir),
			webrtc.WithSettingEngine(se),
		),
		config: Configuration(opts),
	}, nil
}

// AudioCodec is the one audio codec sessions negotiate.
func AudioCodec() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypePCMU,
		ClockRate: 8000,
		Channels:  1,
	}
}

// Configuration builds the ICE configuration from STUN and TURN settings.
func Configuration(opts APIOptions) webrtc.Configuration {
	var servers []webrtc.ICEServer
	if len(opts.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: opts.STUNServers})
	}
	if len(opts.TURNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       opts.TURNServers,
			Username:   opts.TURNUser,
			Credential: opts.TURNPass,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if len(opts.TURNServers) > 0 && opts.ForceRelay {
		policy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: policy,
	}
}

// NewPeerConnection creates a connection with the shared configuration.
func (a *API) NewPeerConnection() (*webrtc.PeerConnection, error) {
	pc, err := a.api.NewPeerConnection(a.config)
	if err != nil {
		return nil, newError("create peer connection", "", err)
	}
	return pc, nil
}
