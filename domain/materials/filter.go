package materials

// ArtifactPredicate selects artifacts by their position and value.
type ArtifactPredicate[A any] func(collection, publication, artifact string, a A) bool

// FilterArtifacts returns a new universe holding only the artifacts the
// predicate keeps. Publications and collections drained of content stay
// in place; compose with RemoveEmpty to drop them.
func FilterArtifacts[A any](u *Universe[A], keep ArtifactPredicate[A]) *Universe[A] {
	out := NewUniverse[A]()
	for _, ck := range u.Keys() {
		col, _ := u.Get(ck)
		outCol := NewCollection[A](col.Spec)
		for _, pk := range col.Keys() {
			pub, _ := col.Get(pk)
			outPub := NewPublication[A]()
			outPub.Metadata = pub.Metadata
			outPub.Ready = pub.Ready
			outPub.ReleaseTime = pub.ReleaseTime
			for _, ak := range pub.Keys() {
				a, _ := pub.Get(ak)
				if keep(ck, pk, ak, a) {
					outPub.Put(ak, a)
				}
			}
			outCol.Put(pk, outPub)
		}
		out.Put(ck, outCol)
	}
	return out
}

// RemoveEmpty returns a new universe without artifact-less publications
// and publication-less collections.
func RemoveEmpty[A any](u *Universe[A]) *Universe[A] {
	out := NewUniverse[A]()
	for _, ck := range u.Keys() {
		col, _ := u.Get(ck)
		outCol := NewCollection[A](col.Spec)
		for _, pk := range col.Keys() {
			pub, _ := col.Get(pk)
			if pub.Len() == 0 {
				continue
			}
			outCol.Put(pk, pub)
		}
		if outCol.Len() == 0 {
			continue
		}
		out.Put(ck, outCol)
	}
	return out
}
