/*
To write to files in a robust way we should:

- handle error returned by `Close()`

- handle error returned by `Write()`

- never leave a partially written file at the destination path

Package atomicfile writes to a temporary file in the same directory
and renames it over the destination only after everything succeeded:

	func saveTwaps(path string, data []byte) error {
		w, err := atomicfile.New(path)
		if err != nil {
			return err
		}
		// removes the temp file if we return before Close()
		defer w.RemoveIfNotClosed()

		_, err = w.Write(data)
		if err != nil {
			return err
		}
		return w.Close()
	}

For the common case there's WriteFile().
*/
package atomicfile
