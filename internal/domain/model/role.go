package model

import "strings"

type Role string

const (
	RoleCliente    Role = "CLIENTE"
	RoleRepartidor Role = "REPARTIDOR"
	RoleSupervisor Role = "SUPERVISOR"
	RoleGerente    Role = "GERENTE"
	RoleAdmin      Role = "ADMIN"
)

// ロールごとのスコープ（発行時に固定）
var roleScopes = map[Role]string{
	RoleAdmin:      "admin:all",
	RoleGerente:    "manager:read manager:write",
	RoleSupervisor: "supervisor:read supervisor:write",
	RoleRepartidor: "delivery:read delivery:write",
	RoleCliente:    "customer:read customer:write",
}

// 権限の弱い順
var allRoles = []Role{RoleCliente, RoleRepartidor, RoleSupervisor, RoleGerente, RoleAdmin}

func AllRoles() []Role {
	return append([]Role(nil), allRoles...)
}

// 文字列からロールへ。未知のロールは false
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := roleScopes[r]; !ok {
		return "", false
	}
	return r, true
}

func (r Role) Valid() bool {
	_, ok := roleScopes[r]
	return ok
}

// 権限レベル（大きいほど強い）。未知のロールは 0
func (r Role) AuthorityLevel() int {
	switch r {
	case RoleCliente:
		return 1
	case RoleRepartidor:
		return 2
	case RoleSupervisor:
		return 3
	case RoleGerente:
		return 4
	case RoleAdmin:
		return 5
	default:
		return 0
	}
}

// 配達を行うロールか（フリート情報が必須）
func (r Role) IsOperational() bool {
	return r == RoleRepartidor
}

func (r Role) IsManager() bool {
	return r == RoleSupervisor || r == RoleGerente || r == RoleAdmin
}

// アクセストークンに載せるスコープ文字列
func (r Role) Scope() string {
	return roleScopes[r]
}
