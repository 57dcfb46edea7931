package crypto

import "sync"

// recordBufferPool pools full-record buffers so streaming downloads do not
// allocate ~1 MiB per record. Buffers hold ciphertext records and are zeroized
// before being returned to the pool so record bytes never linger in reusable
// memory.
type recordBufferPool struct {
	pool sync.Pool
}

var recordPool = &recordBufferPool{
	pool: sync.Pool{
		New: func() interface{} {
			b := make([]byte, MaxRecordSize)
			return &b
		},
	},
}

// Get returns a MaxRecordSize buffer.
func (p *recordBufferPool) Get() []byte {
	return *(p.pool.Get().(*[]byte))
}

// Put zeroizes buf and returns it to the pool. Wrong-sized buffers are left
// to the garbage collector.
func (p *recordBufferPool) Put(buf []byte) {
	if cap(buf) != MaxRecordSize {
		return
	}
	buf = buf[:cap(buf)]
	for i := range buf {
		buf[i] = 0
	}
	p.pool.Put(&buf)
}
