/*

Package base provides base data structures and functions for ratemat.

The base data structures and functions include:

* Random Generator

Logging, progress tracking and deep copying live in subpackages.

*/
package base
