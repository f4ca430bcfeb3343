package model

import "time"

// RoomStatus は予約から導出される部屋の状態です
type RoomStatus string

const (
	RoomStatusFree     RoomStatus = "FREE"
	RoomStatusReserved RoomStatus = "RESERVED"
	RoomStatusOccupied RoomStatus = "OCCUPIED"
)

func (s RoomStatus) String() string {
	return string(s)
}

// Room は予約対象の部屋です
// Status は予約から再計算されるキャッシュで、直接設定しません
type Room struct {
	ID               int64      `db:"id" json:"id"`
	RoomNumber       int        `db:"room_number" json:"room_number"`
	Name             string     `db:"name" json:"name"`
	Capacity         int        `db:"capacity" json:"capacity"`
	Status           RoomStatus `db:"status" json:"status"`
	ConfirmationCode string     `db:"confirmation_code" json:"-"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// AcceptsCode は部屋の固定コード(フォールバック)と一致するかを返します
func (r Room) AcceptsCode(code string) bool {
	return r.ConfirmationCode != "" && r.ConfirmationCode == code
}

// User は予約者です。コアは存在確認のみ行います
type User struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
