// Package pdf assembles restored page images into one PDF per instrument
// using go-pdf/fpdf. Pages are 1700x2200 points with the image drawn edge to
// edge.
package pdf
