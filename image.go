package portability

import (
	"sync"

	"github.com/italicsjenga/portability/driver"
)

// ImageCreateFlags modify image creation.
type ImageCreateFlags uint32

// ImageCreateAlias lets the image share memory ranges with other resources
// that also carry the flag.
const ImageCreateAlias ImageCreateFlags = 1 << 0

// ImageCreateInfo mirrors the target API's image creation parameters for
// the 2D/3D cases the layer translates.
type ImageCreateInfo struct {
	Extent        Extent3D
	MipLevels     uint32
	ArrayLayers   uint32
	Format        Format
	Usage         ImageUsageFlags
	Flags         ImageCreateFlags
	InitialLayout ImageLayout
}

type imageObject struct {
	mu     sync.Mutex
	device Device
	img    driver.Image
	extent Extent3D
	format Format
	usage  ImageUsageFlags
	alias  bool

	mem       DeviceMemory
	memOffset uint64
	bound     bool

	watchers map[*commandBufferObject]struct{}
}

// CreateImage creates an unbound image. Only Undefined and Preinitialized
// initial layouts exist at creation, as in the target API.
func (d Device) CreateImage(info *ImageCreateInfo) (Image, error) {
	obj, err := deviceFor(d)
	if err != nil {
		return 0, err
	}
	if info == nil || info.Extent.Width == 0 || info.Extent.Height == 0 {
		return 0, Error(ErrorValidationFailed)
	}
	if info.InitialLayout != ImageLayoutUndefined && info.InitialLayout != ImageLayoutPreinitialized {
		return 0, Error(ErrorValidationFailed)
	}
	if obj.limits.MaxImageDimension2D != 0 &&
		(info.Extent.Width > obj.limits.MaxImageDimension2D || info.Extent.Height > obj.limits.MaxImageDimension2D) {
		return 0, Error(ErrorFormatNotSupported)
	}

	mips := info.MipLevels
	if mips == 0 {
		mips = 1
	}
	layers := info.ArrayLayers
	if layers == 0 {
		layers = 1
	}
	depth := info.Extent.Depth
	if depth == 0 {
		depth = 1
	}

	img, err := obj.dev.CreateImage(driver.ImageDesc{
		Width:        info.Extent.Width,
		Height:       info.Extent.Height,
		Depth:        depth,
		MipLevels:    mips,
		ArrayLayers:  layers,
		Format:       uint32(info.Format),
		RenderTarget: info.Usage&(ImageUsageColorAttachment|ImageUsageDepthStencilAttachment) != 0,
		Sampled:      info.Usage&(ImageUsageSampled|ImageUsageStorage|ImageUsageInputAttachment) != 0,
		TransferSrc:  info.Usage&ImageUsageTransferSrc != 0,
		TransferDst:  info.Usage&ImageUsageTransferDst != 0,
	})
	if err != nil {
		Logger().Warn("image creation failed", "format", uint32(info.Format), "err", err)
		return 0, Error(ErrorFormatNotSupported)
	}

	io := &imageObject{
		device:   d,
		img:      img,
		extent:   Extent3D{Width: info.Extent.Width, Height: info.Extent.Height, Depth: depth},
		format:   info.Format,
		usage:    info.Usage,
		alias:    info.Flags&ImageCreateAlias != 0,
		watchers: make(map[*commandBufferObject]struct{}),
	}
	return Image(obj.reg.allocate(KindImage, io)), nil
}

// MemoryRequirements reports size, alignment and compatible memory types.
func (i Image) MemoryRequirements() (MemoryRequirements, error) {
	io, err := resolve[*imageObject](Handle(i), KindImage)
	if err != nil {
		return MemoryRequirements{}, err
	}
	req := io.img.Requirements()
	return MemoryRequirements{
		Size:           req.Size,
		Alignment:      req.Alignment,
		MemoryTypeBits: req.HeapMask,
	}, nil
}

// BindMemory attaches memory to the image, one-shot.
func (i Image) BindMemory(mem DeviceMemory, offset uint64) error {
	io, err := resolve[*imageObject](Handle(i), KindImage)
	if err != nil {
		return err
	}
	mo, err := resolve[*deviceMemoryObject](Handle(mem), KindDeviceMemory)
	if err != nil {
		return err
	}
	if _, err := deviceFor(io.device); err != nil {
		return err
	}

	req := io.img.Requirements()
	if offset%req.Alignment != 0 {
		return Error(ErrorValidationFailed)
	}
	if mo.heap < 32 && req.HeapMask&(1<<mo.heap) == 0 {
		return Error(ErrorValidationFailed)
	}

	io.mu.Lock()
	defer io.mu.Unlock()
	if io.bound {
		return Error(ErrorValidationFailed)
	}
	if err := mo.claim(offset, req.Size, Handle(i), io.alias); err != nil {
		return err
	}
	if err := io.img.Bind(mo.mem, mo.base+offset); err != nil {
		mo.unclaim(Handle(i))
		Logger().Warn("image bind failed", "err", err)
		return Error(ErrorOutOfDeviceMemory)
	}
	io.mem = mem
	io.memOffset = offset
	io.bound = true
	return nil
}

// Destroy releases the image, invalidating unsubmitted recordings that
// reference it.
func (i Image) Destroy() error {
	io, err := resolve[*imageObject](Handle(i), KindImage)
	if err != nil {
		return err
	}
	reg := currentRegistry()
	if reg == nil {
		return Error(ErrorInitializationFailed)
	}

	io.mu.Lock()
	watchers := io.watchers
	io.watchers = nil
	io.mu.Unlock()
	for cb := range watchers {
		cb.invalidate()
	}

	if io.bound {
		if mo, merr := resolve[*deviceMemoryObject](Handle(io.mem), KindDeviceMemory); merr == nil {
			mo.unclaim(Handle(i))
		}
	}

	reg.destroy(Handle(i), KindImage, func() {
		io.img.Destroy()
	})
	return nil
}

func (io *imageObject) watch(cb *commandBufferObject) {
	io.mu.Lock()
	if io.watchers != nil {
		io.watchers[cb] = struct{}{}
	}
	io.mu.Unlock()
}

func (io *imageObject) unwatch(cb *commandBufferObject) {
	io.mu.Lock()
	if io.watchers != nil {
		delete(io.watchers, cb)
	}
	io.mu.Unlock()
}
