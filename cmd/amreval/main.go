// Command amreval scores AMR parsing and generation output and drives
// remote beam-search generation over pre-tokenized datasets.
package main

func main() {
	Execute()
}
