package xnet

import "sync"

// 读缓冲对象池, 每个缓冲MaxChunkSize字节
var chunkPool = sync.Pool{
	New: func() interface{} {
		bs := make([]byte, MaxChunkSize)
		return &bs
	},
}

// GetChunk 取一个读缓冲, 用完后PutChunk归还
func GetChunk() *[]byte {
	return chunkPool.Get().(*[]byte)
}

func PutChunk(bs *[]byte) {
	if cap(*bs) < MaxChunkSize {
		return
	}
	*bs = (*bs)[:MaxChunkSize]
	chunkPool.Put(bs)
}
