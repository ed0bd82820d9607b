package directory

import "strings"

// TeamTalk 5 USERRIGHT_* bits.
const (
	rightMultiLogin             uint32 = 0x00000001
	rightViewAllUsers           uint32 = 0x00000002
	rightCreateTemporaryChannel uint32 = 0x00000004
	rightModifyChannels         uint32 = 0x00000008
	rightTextmessageBroadcast   uint32 = 0x00000010
	rightKickUsers              uint32 = 0x00000020
	rightBanUsers               uint32 = 0x00000040
	rightMoveUsers              uint32 = 0x00000080
	rightOperatorEnable         uint32 = 0x00000100
	rightUploadFiles            uint32 = 0x00000200
	rightDownloadFiles          uint32 = 0x00000400
	rightUpdateServerProperties uint32 = 0x00000800
	rightTransmitVoice          uint32 = 0x00001000
	rightTransmitVideoCapture   uint32 = 0x00002000
	rightTransmitDesktop        uint32 = 0x00004000
	rightTransmitDesktopInput   uint32 = 0x00008000
	rightTransmitMediaFile      uint32 = 0x00010000
	rightLockedNickname         uint32 = 0x00020000
	rightLockedStatus           uint32 = 0x00040000
	rightRecordVoice            uint32 = 0x00080000
	rightViewHiddenChannels     uint32 = 0x00100000
	rightTextmessageUser        uint32 = 0x00200000
	rightTextmessageChannel     uint32 = 0x00400000
)

var rightBits = map[string]uint32{
	"MULTI_LOGIN":              rightMultiLogin,
	"VIEW_ALL_USERS":           rightViewAllUsers,
	"CREATE_TEMPORARY_CHANNEL": rightCreateTemporaryChannel,
	"MODIFY_CHANNELS":          rightModifyChannels,
	"TEXTMESSAGE_BROADCAST":    rightTextmessageBroadcast,
	"KICK_USERS":               rightKickUsers,
	"BAN_USERS":                rightBanUsers,
	"MOVE_USERS":               rightMoveUsers,
	"OPERATOR_ENABLE":          rightOperatorEnable,
	"UPLOAD_FILES":             rightUploadFiles,
	"DOWNLOAD_FILES":           rightDownloadFiles,
	"UPDATE_SERVERPROPERTIES":  rightUpdateServerProperties,
	"TRANSMIT_VOICE":           rightTransmitVoice,
	"TRANSMIT_VIDEOCAPTURE":    rightTransmitVideoCapture,
	"TRANSMIT_DESKTOP":         rightTransmitDesktop,
	"TRANSMIT_DESKTOPINPUT":    rightTransmitDesktopInput,
	"TRANSMIT_MEDIAFILE":       rightTransmitMediaFile,
	"LOCKED_NICKNAME":          rightLockedNickname,
	"LOCKED_STATUS":            rightLockedStatus,
	"RECORD_VOICE":             rightRecordVoice,
	"VIEW_HIDDEN_CHANNELS":     rightViewHiddenChannels,
	"TEXTMESSAGE_USER":         rightTextmessageUser,
	"TEXTMESSAGE_CHANNEL":      rightTextmessageChannel,
}

// RightsMask folds a list of right names into the TeamTalk bitmask.
// Names are case-insensitive; unknown names contribute nothing. An empty
// list yields 0, which CreateAccount treats as "use the server default".
func RightsMask(names []string) uint32 {
	var mask uint32
	for _, name := range names {
		mask |= rightBits[strings.ToUpper(name)]
	}
	return mask
}
