package domain

// Role 登录主体角色（显式 tagged union，不从对象形态推断）
type Role string

const (
	RolePatient   Role = "patient"
	RolePhysician Role = "physician"
)

// Principal 外部身份层传入的已认证主体（id + role）
// 会话/登录机制由外部协作方负责，本服务只消费结果
type Principal struct {
	ID   string
	Role Role
}

// Valid 主体是否携带了完整的身份信息
func (p Principal) Valid() bool {
	return p.ID != "" && (p.Role == RolePatient || p.Role == RolePhysician)
}
