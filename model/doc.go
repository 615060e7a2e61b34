/*

Package model provides hyper-parameters and the shared base for rating models.

Hyper-parameters are loosely typed key-value pairs read through typed getters
with defaults, so models never fail on an unset parameter. ParamsGrid
enumerates candidate values per parameter for hyper-parameter search.

	* Rating models include: Mean, KNN, NNMF(multiplicative), NNMF(SGD)

*/
package model
