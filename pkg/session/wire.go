package session

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/opencloud/opencloud/pkg/settings"
)

type createRequest struct {
	SessionRequestData requestData `json:"sessionRequestData"`
}

type requestData struct {
	AppID                         string            `json:"appId"`
	InternalTitle                 *string           `json:"internalTitle"`
	ClientIdentification          string            `json:"clientIdentification"`
	DeviceHashID                  string            `json:"deviceHashId"`
	ClientVersion                 string            `json:"clientVersion"`
	ClientPlatformName            string            `json:"clientPlatformName"`
	ClientRequestMonitorSettings  []monitorSettings `json:"clientRequestMonitorSettings"`
	MetaData                      []keyValue        `json:"metaData"`
	SdrHdrMode                    int               `json:"sdrHdrMode"`
	SurroundAudioInfo             int               `json:"surroundAudioInfo"`
	AudioMode                     int               `json:"audioMode"`
	ClientTimezoneOffset          int64             `json:"clientTimezoneOffset"`
	EnhancedStreamMode            int               `json:"enhancedStreamMode"`
	AppLaunchMode                 int               `json:"appLaunchMode"`
	SecureRTSPSupported           bool              `json:"secureRTSPSupported"`
	AccountLinked                 bool              `json:"accountLinked"`
	UseOps                        bool              `json:"useOps"`
	RequestedStreamingFeatures    streamingFeatures `json:"requestedStreamingFeatures"`
	AvailableSupportedControllers []int             `json:"availableSupportedControllers"`
}

type monitorSettings struct {
	WidthInPixels   int `json:"widthInPixels"`
	HeightInPixels  int `json:"heightInPixels"`
	FramesPerSecond int `json:"framesPerSecond"`
	SdrHdrMode      int `json:"sdrHdrMode"`
	Dpi             int `json:"dpi"`
}

type keyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type streamingFeatures struct {
	Reflex       bool `json:"reflex"`
	BitDepth     int  `json:"bitDepth"`
	ChromaFormat int  `json:"chromaFormat"`
	CloudGsync   bool `json:"cloudGsync"`
	TrueHdr      bool `json:"trueHdr"`
}

// newCreateRequest translates the stream settings
// into the session service schema.
func newCreateRequest(appID string, st settings.Stream, accountLinked bool, deviceID, version string, now time.Time) createRequest {
	w, h := st.Size()
	_, offset := now.Zone()
	return createRequest{SessionRequestData: requestData{
		AppID:                appID,
		ClientIdentification: "GFN-PC",
		DeviceHashID:         deviceID,
		ClientVersion:        version,
		ClientPlatformName:   "linux",
		ClientRequestMonitorSettings: []monitorSettings{{
			WidthInPixels:   w,
			HeightInPixels:  h,
			FramesPerSecond: st.FPS,
			SdrHdrMode:      0,
			Dpi:             100,
		}},
		MetaData: []keyValue{
			{Key: "SubSessionId", Value: uuid.Must(uuid.NewV4()).String()},
			{Key: "wssignaling", Value: "1"},
			{Key: "GSStreamerType", Value: "WebRTC"},
			{Key: "networkType", Value: "Unknown"},
			{Key: "languageCode", Value: st.Language},
			{Key: "keyboardLayout", Value: st.KeyboardLayout},
		},
		SdrHdrMode:           0,
		AudioMode:            2,
		ClientTimezoneOffset: int64(offset) * 1000,
		EnhancedStreamMode:   1,
		AppLaunchMode:        1,
		AccountLinked:        accountLinked,
		UseOps:               true,
		RequestedStreamingFeatures: streamingFeatures{
			BitDepth:     st.ColorQuality.BitDepth(),
			ChromaFormat: st.ColorQuality.ChromaFormat(),
		},
		AvailableSupportedControllers: []int{},
	}}
}

type envelope struct {
	RequestStatus requestStatus   `json:"requestStatus"`
	Session       *remoteSession  `json:"session,omitempty"`
	Sessions      []remoteSession `json:"sessions,omitempty"`
}

type requestStatus struct {
	StatusCode        int    `json:"statusCode"`
	StatusDescription string `json:"statusDescription,omitempty"`
	UnifiedErrorCode  int    `json:"unifiedErrorCode,omitempty"`
	ServerID          string `json:"serverId,omitempty"`
}

// ok is true for 0 (none) and 1 (success).
func (r requestStatus) ok() bool { return r.StatusCode == 0 || r.StatusCode == 1 }

type remoteSession struct {
	SessionID          string `json:"sessionId"`
	Status             Status `json:"status"`
	GpuType            string `json:"gpuType,omitempty"`
	QueuePosition      int    `json:"queuePosition,omitempty"`
	SessionControlInfo *struct {
		IP string `json:"ip"`
	} `json:"sessionControlInfo,omitempty"`
	ConnectionInfo         []Connection `json:"connectionInfo,omitempty"`
	IceServerConfiguration *struct {
		IceServers []IceServer `json:"iceServers"`
	} `json:"iceServerConfiguration,omitempty"`
}

func (r *remoteSession) controlIP() string {
	if r.SessionControlInfo == nil {
		return ""
	}
	return r.SessionControlInfo.IP
}

// info converts the remote session without the signaling part.
func (r *remoteSession) info(zone string) *Info {
	i := &Info{
		SessionID:     r.SessionID,
		Status:        r.Status,
		Zone:          zone,
		ServerIP:      r.controlIP(),
		GPUType:       r.GpuType,
		QueuePosition: r.QueuePosition,
	}
	if r.IceServerConfiguration != nil {
		i.IceServers = r.IceServerConfiguration.IceServers
	}
	if len(i.IceServers) == 0 {
		i.IceServers = FallbackIceServers
	}
	return i
}
