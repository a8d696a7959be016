package secret

import "time"

const (
	// UserSecretSize 是每个用户私有密钥的字节长度
	UserSecretSize = 16
	// ServerSecretSize 是全局服务器密钥的字节长度
	ServerSecretSize = 32

	// serverSecretID 是服务器密钥表中唯一一行的主键
	serverSecretID = 1
)

// UserSecret 保存每个用户的私有密钥，首次需要时生成，之后永久复用。
type UserSecret struct {
	UserID    int64  `gorm:"primaryKey;autoIncrement:false"`
	Secret    []byte `gorm:"not null"`
	CreatedAt time.Time
}

// ServerSecret 保存部署级别的全局密钥。
// 这张表中应该只有一条记录。
type ServerSecret struct {
	ID        uint   `gorm:"primaryKey;autoIncrement:false"`
	Secret    []byte `gorm:"not null"`
	RotatedAt time.Time
}
