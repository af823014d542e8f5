package labels

// Relabel binarises a (any nonzero pixel is foreground) and assigns a fresh
// id to every 8-connected foreground component. Ids start at 1 and follow
// the raster order of each component's first pixel. It returns the new array
// and the number of components found.
func Relabel(a Array) (Array, int) {
	out := New(a.Rows, a.Cols)
	if a.Rows == 0 || a.Cols == 0 {
		return out, 0
	}

	dr := [8]int{-1, -1, -1, 0, 0, 1, 1, 1}
	dc := [8]int{-1, 0, 1, -1, 1, -1, 0, 1}

	var next uint32
	queue := make([]int, 0, 1024)
	for r := 0; r < a.Rows; r++ {
		src := a.Row(r)
		for c := range src {
			if src[c] == 0 || out.Pix[r*out.Stride+c] != 0 {
				continue
			}
			next++
			out.Pix[r*out.Stride+c] = next
			queue = append(queue[:0], r*out.Stride+c)

			for len(queue) > 0 {
				cur := queue[len(queue)-1]
				queue = queue[:len(queue)-1]
				cr, cc := cur/out.Stride, cur%out.Stride

				for k := 0; k < 8; k++ {
					nr, nc := cr+dr[k], cc+dc[k]
					if nr < 0 || nr >= a.Rows || nc < 0 || nc >= a.Cols {
						continue
					}
					if a.At(nr, nc) == 0 || out.Pix[nr*out.Stride+nc] != 0 {
						continue
					}
					out.Pix[nr*out.Stride+nc] = next
					queue = append(queue, nr*out.Stride+nc)
				}
			}
		}
	}
	return out, int(next)
}
