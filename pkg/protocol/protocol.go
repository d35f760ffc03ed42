// Package protocol implements the framing spoken between the name service and
// PAM client modules and the nslcd daemon over its unix socket.
//
// Every integer is a 32-bit signed value in network byte order. A string is
// its length followed by the raw bytes. A connection starts with the client
// sending Version; every call after that is an action code followed by the
// action's fields. A response repeats Version and the action, then writes
// ResultBegin before each record and a single ResultEnd after the last one.
package protocol

import "fmt"

const Version int32 = 1

// Action codes
const (
	ActionGroupByName  int32 = 0x00040001
	ActionGroupByGID   int32 = 0x00040002
	ActionGroupAll     int32 = 0x00040008
	ActionPasswdByName int32 = 0x00080001
	ActionPasswdByUID  int32 = 0x00080002
	ActionPasswdAll    int32 = 0x00080008
	ActionPAMAuthc     int32 = 0x000d0001
	ActionPAMAuthz     int32 = 0x000d0002
	ActionPAMSessOpen  int32 = 0x000d0003
	ActionPAMSessClose int32 = 0x000d0004
	ActionPAMPwMod     int32 = 0x000d0005
)

// Record markers
const (
	ResultBegin int32 = 1
	ResultEnd   int32 = 2
)

// PAM result codes
const (
	PAMSuccess         int32 = 0
	PAMPermDenied      int32 = 6
	PAMAuthErr         int32 = 7
	PAMAuthInfoUnavail int32 = 9
	PAMUserUnknown     int32 = 10
)

// Field bounds. A string longer than its bound is a protocol violation.
const (
	MaxNameLen     = 255
	MaxDNLen       = 255
	MaxServiceLen  = 63
	MaxPasswordLen = 63
	MaxHostLen     = 255
	MaxTTYLen      = 63
	MaxListLen     = 65536
	MaxAddressLen  = 16
)

var actionNames = map[int32]string{
	ActionGroupByName:  "group_byname",
	ActionGroupByGID:   "group_bygid",
	ActionGroupAll:     "group_all",
	ActionPasswdByName: "passwd_byname",
	ActionPasswdByUID:  "passwd_byuid",
	ActionPasswdAll:    "passwd_all",
	ActionPAMAuthc:     "pam_authc",
	ActionPAMAuthz:     "pam_authz",
	ActionPAMSessOpen:  "pam_sess_o",
	ActionPAMSessClose: "pam_sess_c",
	ActionPAMPwMod:     "pam_pwmod",
}

// ActionName returns a short printable name for an action code
func ActionName(action int32) string {
	if name, ok := actionNames[action]; ok {
		return name
	}
	return fmt.Sprintf("0x%08x", action)
}
