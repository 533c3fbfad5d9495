package catalog1

// randDwords are the 128 fixed pseudo-random 32-bit constants the perm
// permutation mixes in. These values are part of the external signature
// contract (spec §4.8): any compatible implementation must reproduce the
// exact same signatures from the exact same opcode bytes, so they are
// carried over verbatim rather than regenerated.
var randDwords = [128]uint32{
	1445200656, 3877429363, 1060188777, 4260769784, 1438562000,
	2836098482, 1986405151, 4230168452, 380326093, 2859127666,
	1134102609, 788546250, 3705417527, 1779868252, 1958737986,
	4046915967, 1614805928, 4160312724, 3682325739, 534901034,
	2287240917, 2677201636, 71025852, 1171752314, 47956297,
	2265969327, 2865804126, 1364027301, 2267528752, 1998395705,
	576397983, 636085149, 3876141063, 1131266725, 3949079092,
	1674557074, 2566739348, 3782985982, 2164386649, 550438955,
	2491039847, 2409394861, 3757073140, 3509849961, 3972853470,
	1377009785, 2164834118, 820549672, 2867309379, 1454756115,
	94270429, 2974978638, 2915205038, 1887247447, 3641720023,
	4292314015, 702694146, 1808155309, 95993403, 1529688311,
	2883286160, 1410658736, 3225014055, 1903093988, 2049895643,
	476880516, 3241604078, 3709326844, 2531992854, 265580822,
	2920230147, 4294230868, 408106067, 3683123785, 1782150222,
	3876124798, 3400886112, 1837386661, 664033147, 3948403539,
	3572529266, 4084780068, 691101764, 1191456665, 3559651142,
	709364116, 3999544719, 189208547, 3851247656, 69124994,
	1685591380, 1312437435, 2316872331, 1466758250, 1979107610,
	2611873442, 80372344, 1251839752, 2716578101, 176193185,
	2142192370, 1179562050, 1290470544, 1957198791, 1435943450,
	2989992875, 3703466909, 1302678442, 3343948619, 3762772165,
	1438266632, 1761719790, 3668101852, 1283600006, 671544087,
	1665876818, 3645433092, 3760380605, 3802664867, 1635015896,
	1060356828, 1666255066, 2953295653, 2827859377, 386702151,
	3372348076, 4248620909, 2259505262,
}
