// Package watch indexes document files dropped into a directory.
//
// Files ending in .json hold one document object or an array of them;
// files ending in .jsonl hold one document object per line. A file is
// processed once it has been quiet for the debounce interval, so large
// files written in several chunks are read whole.
package watch
