package payload

// Opcode identifies the kind of envelope carried on the gateway socket.
type Opcode int

const (
	OpcodeDispatch       Opcode = 0
	OpcodeHeartbeat      Opcode = 1
	OpcodeIdentify       Opcode = 2
	OpcodePresenceUpdate Opcode = 3
	OpcodeResume         Opcode = 6
	OpcodeReconnect      Opcode = 7
	OpcodeInvalidSession Opcode = 9
	OpcodeHello          Opcode = 10
	OpcodeHeartbeatAck   Opcode = 11
)

// Dispatch event names the connection core reacts to itself. All other
// dispatches are forwarded to the application untouched.
const (
	EventReady   = "READY"
	EventResumed = "RESUMED"
)

// Intent is a bit in the event-subscription bitmask sent with Identify.
type Intent int

const (
	IntentGuilds                Intent = 1 << 0
	IntentGuildMembers          Intent = 1 << 1
	IntentGuildModeration       Intent = 1 << 2
	IntentGuildExpressions      Intent = 1 << 3
	IntentGuildIntegrations     Intent = 1 << 4
	IntentGuildWebhooks         Intent = 1 << 5
	IntentGuildInvites          Intent = 1 << 6
	IntentGuildVoiceStates      Intent = 1 << 7
	IntentGuildPresences        Intent = 1 << 8
	IntentGuildMessages         Intent = 1 << 9
	IntentGuildMessageReactions Intent = 1 << 10
	IntentGuildMessageTyping    Intent = 1 << 11
	IntentDirectMessages        Intent = 1 << 12
	IntentMessageContent        Intent = 1 << 15
)

// CombineIntents folds a set of intents into the bitmask wire value.
func CombineIntents(intents []Intent) int {
	mask := 0
	for _, it := range intents {
		mask |= int(it)
	}
	return mask
}

// Frame is a decoded inbound envelope. Data holds the `d` field still in
// the negotiated wire encoding; use Codec.Unmarshal to extract a typed
// payload.
type Frame struct {
	Op   Opcode
	Seq  *int64
	Type string
	Data []byte
}

// Command is an outbound envelope. Seq carries the last-seen sequence
// number; Data is encoded by the codec on send.
type Command struct {
	Op   Opcode
	Seq  *int64
	Data any
}

// Hello is the first frame the server sends after the socket opens.
type Hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

// Ready is the dispatch payload that assigns the session identity.
type Ready struct {
	Version          int                `json:"v"`
	User             User               `json:"user"`
	SessionID        string             `json:"session_id"`
	ResumeGatewayURL string             `json:"resume_gateway_url"`
	Guilds           []UnavailableGuild `json:"guilds"`
}

// User is the subset of the user object the connection core needs.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// UnavailableGuild is a guild stub delivered with Ready.
type UnavailableGuild struct {
	ID          string `json:"id"`
	Unavailable bool   `json:"unavailable"`
}

// IdentifyProperties describes the connecting client.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Identify opens a fresh session.
type Identify struct {
	Token      string             `json:"token"`
	Properties IdentifyProperties `json:"properties"`
	Intents    int                `json:"intents"`
	Compress   bool               `json:"compress,omitempty"`
	Shard      *[2]int            `json:"shard,omitempty"`
	Presence   *PresenceUpdate    `json:"presence,omitempty"`
}

// Resume replays a previous session from the last-seen sequence.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// PresenceUpdate sets the client presence (opcode 3, and the `presence`
// field of Identify).
type PresenceUpdate struct {
	Since      *int64     `json:"since"`
	Activities []Activity `json:"activities"`
	Status     string     `json:"status"`
	AFK        bool       `json:"afk"`
}

// Activity is a single presence activity.
type Activity struct {
	Name string `json:"name"`
	Type int    `json:"type"`
	URL  string `json:"url,omitempty"`
}
