package model

// 認証は外部。JWTのroleクレームをそのまま使う。
type Role string

const (
	RoleClient   Role = "CLIENT"
	RoleProducer Role = "PRODUCER"
	RoleAdmin    Role = "ADMIN"
)
