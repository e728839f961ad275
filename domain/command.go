package domain

// Command is the closed set of inbound client intents. The transport
// boundary parses raw frames into exactly one of these variants and
// drops anything that does not fit.
type Command interface {
	Kind() string
}

type JoinCommand struct {
	Username string
	Room     string
}

func (JoinCommand) Kind() string { return "join" }

type LeaveCommand struct {
	Username string
	Room     string
}

func (LeaveCommand) Kind() string { return "leave" }

type PostMessageCommand struct {
	Username string
	Room     string
	Body     string
}

func (PostMessageCommand) Kind() string { return "message" }

type RegisterUserCommand struct {
	Username string
}

func (RegisterUserCommand) Kind() string { return "register_user" }

type OnlineUsersCommand struct{}

func (OnlineUsersCommand) Kind() string { return "get_online_users" }

type DirectMessageCommand struct {
	Sender    string
	Recipient string
	Body      string
}

func (DirectMessageCommand) Kind() string { return "direct_message" }

type DMHistoryCommand struct {
	User1 string
	User2 string
}

func (DMHistoryCommand) Kind() string { return "get_dm_history" }

type TypingCommand struct {
	Username string
	Room     string
}

func (TypingCommand) Kind() string { return "typing" }

type StaringCommand struct {
	Username string
	Target   string
	Room     string
}

func (StaringCommand) Kind() string { return "staring" }

type FileMessageCommand struct {
	Username  string
	Sender    string
	Recipient string
	Room      string
	IsDM      bool
	File      FilePayload
}

func (FileMessageCommand) Kind() string { return "file_message" }
