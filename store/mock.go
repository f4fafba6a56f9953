package store

import (
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"
)

// NewMemStore 基于 memdb 的 KVStore, 进程退出后数据丢失
func NewMemStore() *KVStore {
	return NewKVStoreWithDB(tmdb.NewMemDB(), log.NewNopLogger())
}
