package portability

import (
	"sync"

	"github.com/italicsjenga/portability/driver"
)

// boundDescriptor is one written binding slot.
type boundDescriptor struct {
	dtype  DescriptorType
	buffer Buffer
	offset uint64
	rng    uint64
	image  Image
	layout ImageLayout
}

type descriptorSetObject struct {
	mu       sync.Mutex
	pool     DescriptorPool
	layout   *descriptorSetLayoutState
	bindings map[uint32]boundDescriptor
}

// WriteBuffer points a buffer-typed binding at a buffer range. Range may
// be WholeSize. The write must match the layout's declared type.
func (s DescriptorSet) WriteBuffer(binding uint32, buf Buffer, offset, rng uint64) error {
	so, err := resolve[*descriptorSetObject](Handle(s), KindDescriptorSet)
	if err != nil {
		return err
	}
	decl, ok := so.layout.binding(binding)
	if !ok || !decl.Type.isBuffer() {
		return Error(ErrorValidationFailed)
	}
	bo, err := resolve[*bufferObject](Handle(buf), KindBuffer)
	if err != nil {
		return err
	}
	if rng == WholeSize {
		if offset > bo.size {
			return Error(ErrorValidationFailed)
		}
		rng = bo.size - offset
	}
	if offset > bo.size || rng > bo.size-offset {
		return Error(ErrorValidationFailed)
	}

	so.mu.Lock()
	so.bindings[binding] = boundDescriptor{dtype: decl.Type, buffer: buf, offset: offset, rng: rng}
	so.mu.Unlock()
	return nil
}

// WriteImage points an image-typed binding at an image.
func (s DescriptorSet) WriteImage(binding uint32, img Image, layout ImageLayout) error {
	so, err := resolve[*descriptorSetObject](Handle(s), KindDescriptorSet)
	if err != nil {
		return err
	}
	decl, ok := so.layout.binding(binding)
	if !ok || decl.Type.isBuffer() {
		return Error(ErrorValidationFailed)
	}
	if _, err := resolve[*imageObject](Handle(img), KindImage); err != nil {
		return err
	}

	so.mu.Lock()
	so.bindings[binding] = boundDescriptor{dtype: decl.Type, image: img, layout: layout}
	so.mu.Unlock()
	return nil
}

func (st *descriptorSetLayoutState) binding(index uint32) (DescriptorBinding, bool) {
	for _, b := range st.bindings {
		if b.Binding == index {
			return b, true
		}
	}
	return DescriptorBinding{}, false
}

func (t DescriptorType) isBuffer() bool {
	switch t {
	case DescriptorTypeUniformBuffer, DescriptorTypeStorageBuffer,
		DescriptorTypeUniformBufferDynamic, DescriptorTypeStorageBufferDynamic,
		DescriptorTypeUniformTexelBuffer, DescriptorTypeStorageTexelBuffer:
		return true
	}
	return false
}

// flatten resolves the written bindings into backend form for a bind
// command, returning the resource handles so the recording can pin them.
// Every declared binding must have been written; the snapshot is taken at
// record time, so later writes do not alter the recording.
func (so *descriptorSetObject) flatten(cb *commandBufferObject) ([]driver.Binding, []Handle, error) {
	so.mu.Lock()
	defer so.mu.Unlock()

	out := make([]driver.Binding, 0, len(so.layout.bindings))
	var refs []Handle
	for _, decl := range so.layout.bindings {
		bd, ok := so.bindings[decl.Binding]
		if !ok {
			return nil, nil, Error(ErrorValidationFailed)
		}
		var b driver.Binding
		b.Binding = decl.Binding
		if bd.dtype.isBuffer() {
			bo, err := cb.useBuffer(bd.buffer)
			if err != nil {
				return nil, nil, err
			}
			b.Buffer = bo.buf
			b.Offset = bd.offset
			b.Range = bd.rng
			refs = append(refs, Handle(bd.buffer))
		} else {
			io, err := cb.useImage(bd.image)
			if err != nil {
				return nil, nil, err
			}
			b.Image = io.img
			refs = append(refs, Handle(bd.image))
		}
		out = append(out, b)
	}
	return out, refs, nil
}
