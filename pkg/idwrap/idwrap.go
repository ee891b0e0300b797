package idwrap

import (
	"time"

	"github.com/oklog/ulid/v2"
)

type IDWrap struct {
	ulid ulid.ULID
}

func New(ulid ulid.ULID) IDWrap {
	return IDWrap{ulid: ulid}
}

func NewNow() IDWrap {
	return IDWrap{ulid: ulid.Make()}
}

func NewText(ulidString string) (IDWrap, error) {
	ulid, err := ulid.Parse(ulidString)
	if err != nil {
		return IDWrap{}, err
	}
	return IDWrap{ulid: ulid}, nil
}

func NewTextMust(ulidString string) IDWrap {
	ulid, err := ulid.Parse(ulidString)
	if err != nil {
		panic(err)
	}
	return IDWrap{ulid: ulid}
}

func NewFromBytes(data []byte) (IDWrap, error) {
	ulidData := ulid.ULID{}
	err := ulidData.UnmarshalBinary(data)
	return IDWrap{ulid: ulidData}, err
}

func (u IDWrap) String() string {
	return u.ulid.String()
}

func (u IDWrap) Bytes() []byte {
	return u.ulid[:]
}

func (u IDWrap) Compare(id IDWrap) int {
	return u.ulid.Compare(id.ulid)
}

func (u IDWrap) Time() time.Time {
	return GetTimeFromULID(u)
}

func GetTimeFromULID(idwrap IDWrap) time.Time {
	return time.UnixMilli(int64(idwrap.ulid.Time()))
}

func GetUnixMilliFromULID(idwrap IDWrap) int64 {
	return int64(idwrap.ulid.Time())
}
