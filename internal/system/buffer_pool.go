package system

import (
	"image"
	"sync"
)

// ImagePool recycles RGBA buffers by size so per-frame conversions do not
// churn the GC.
type ImagePool struct {
	mu    sync.RWMutex
	pools map[image.Point]*sync.Pool
}

var globalPool = NewImagePool()

func NewImagePool() *ImagePool {
	return &ImagePool{pools: make(map[image.Point]*sync.Pool)}
}

// GetImage returns an RGBA buffer for rect from the shared pool. Contents are
// undefined; callers overwrite every pixel.
func GetImage(rect image.Rectangle) *image.RGBA {
	return globalPool.Get(rect)
}

func PutImage(img *image.RGBA) {
	globalPool.Put(img)
}

func (p *ImagePool) Get(rect image.Rectangle) *image.RGBA {
	size := rect.Size()
	img := p.pool(size).Get().(*image.RGBA)
	img.Rect = image.Rectangle{Min: rect.Min, Max: rect.Min.Add(size)}
	return img
}

func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	size := img.Rect.Size()
	p.mu.RLock()
	pool, ok := p.pools[size]
	p.mu.RUnlock()
	if ok {
		pool.Put(img)
	}
}

func (p *ImagePool) pool(size image.Point) *sync.Pool {
	p.mu.RLock()
	pool, ok := p.pools[size]
	p.mu.RUnlock()
	if ok {
		return pool
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if pool, ok = p.pools[size]; ok {
		return pool
	}
	pool = &sync.Pool{
		New: func() any {
			return image.NewRGBA(image.Rectangle{Max: size})
		},
	}
	p.pools[size] = pool
	return pool
}
