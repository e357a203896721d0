package domain

// MessageKind is the tag of a MessagePayload variant.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindVideo    MessageKind = "video"
	KindAudio    MessageKind = "audio"
	KindFile     MessageKind = "file"
	KindSticker  MessageKind = "sticker"
	KindLocation MessageKind = "location"
	KindContact  MessageKind = "contact"
)

// MessagePayload is the content of a message event. The set of
// implementations is closed: only the types in this file satisfy it.
type MessagePayload interface {
	Kind() MessageKind
	MessageID() string
	isMessagePayload()
}

// LineEmoji marks a LINE emoji inside a text message.
type LineEmoji struct {
	Index     int
	Length    int
	ProductID string
	EmojiID   string
}

type TextMessage struct {
	ID     string
	Text   string
	Emojis []LineEmoji
}

// MediaMessage is implemented by the variants whose binary content must be
// downloaded from the LINE content endpoint.
type MediaMessage interface {
	MessagePayload
	OriginalFileName() string
}

type ImageMessage struct{ ID string }

type VideoMessage struct{ ID string }

type AudioMessage struct{ ID string }

type FileMessage struct {
	ID       string
	FileName string
	FileSize int64
}

type StickerMessage struct {
	ID        string
	PackageID string
	StickerID string
}

type LocationMessage struct {
	ID        string
	Title     string
	Address   string
	Latitude  float64
	Longitude float64
}

type ContactMessage struct {
	ID          string
	DisplayName string
}

// UnknownMessage carries a message type this relay does not understand.
type UnknownMessage struct {
	ID   string
	Type string
}

func (TextMessage) Kind() MessageKind     { return KindText }
func (ImageMessage) Kind() MessageKind    { return KindImage }
func (VideoMessage) Kind() MessageKind    { return KindVideo }
func (AudioMessage) Kind() MessageKind    { return KindAudio }
func (FileMessage) Kind() MessageKind     { return KindFile }
func (StickerMessage) Kind() MessageKind  { return KindSticker }
func (LocationMessage) Kind() MessageKind { return KindLocation }
func (ContactMessage) Kind() MessageKind  { return KindContact }

// Kind reports the raw LINE message type.
func (m UnknownMessage) Kind() MessageKind { return MessageKind(m.Type) }

func (m TextMessage) MessageID() string     { return m.ID }
func (m ImageMessage) MessageID() string    { return m.ID }
func (m VideoMessage) MessageID() string    { return m.ID }
func (m AudioMessage) MessageID() string    { return m.ID }
func (m FileMessage) MessageID() string     { return m.ID }
func (m StickerMessage) MessageID() string  { return m.ID }
func (m LocationMessage) MessageID() string { return m.ID }
func (m ContactMessage) MessageID() string  { return m.ID }
func (m UnknownMessage) MessageID() string  { return m.ID }

func (TextMessage) isMessagePayload()     {}
func (ImageMessage) isMessagePayload()    {}
func (VideoMessage) isMessagePayload()    {}
func (AudioMessage) isMessagePayload()    {}
func (FileMessage) isMessagePayload()     {}
func (StickerMessage) isMessagePayload()  {}
func (LocationMessage) isMessagePayload() {}
func (ContactMessage) isMessagePayload()  {}
func (UnknownMessage) isMessagePayload()  {}

func (ImageMessage) OriginalFileName() string  { return "" }
func (VideoMessage) OriginalFileName() string  { return "" }
func (AudioMessage) OriginalFileName() string  { return "" }
func (m FileMessage) OriginalFileName() string { return m.FileName }
