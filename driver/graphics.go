package driver

// IndexFormat selects the element width of an index buffer.
type IndexFormat uint32

const (
	IndexUint16 IndexFormat = iota
	IndexUint32
)

// RenderTarget is one attachment of a render pass instance, flattened for
// the backend.
type RenderTarget struct {
	Image      Image
	Depth      bool
	Clear      bool
	Store      bool
	ClearColor [4]float32
	ClearDepth float32
}

// GraphicsEncoder is the raster extension of Encoder. Backends that report
// Caps.Graphics must implement it; the frontend type-asserts at replay time
// and fails the submission cleanly when the assertion does not hold.
type GraphicsEncoder interface {
	Encoder

	BeginRenderPass(targets []RenderTarget)
	NextSubpass()
	EndRenderPass()

	BindVertexBuffers(first uint32, buffers []Buffer, offsets []uint64)
	BindIndexBuffer(buf Buffer, offset uint64, format IndexFormat)
	SetViewport(x, y, width, height, minDepth, maxDepth float32)
	SetScissor(x, y, width, height uint32)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
}
