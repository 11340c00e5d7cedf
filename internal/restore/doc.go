// Package restore cleans downloaded page previews and upscales them for
// printing.
//
// Each page passes through two networks loaded from safetensors checkpoints:
// a UNet that removes the catalog watermark on a 612x792 canvas, then a VDSR
// network that runs tile by tile over a 1700x2200 canvas. The best checkpoint
// in each model directory is chosen from the validation-loss history recorded
// in the latest epoch file.
package restore
