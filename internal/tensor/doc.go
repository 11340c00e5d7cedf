// Package tensor implements the small set of CHW float32 kernels needed to run
// the restoration networks on the CPU: 2D convolution, 2x2 transposed
// convolution, inference-mode batch normalization, ReLU, max pooling,
// nearest-neighbour resizing, constant padding, cropping, and channel
// concatenation.
//
// Convolutions fan out across output channels on a bounded Pool.
package tensor
